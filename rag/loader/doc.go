// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

// Package loader extracts plain text from policy files before chunking.
//
// Each DocumentLoader handles a set of file extensions and returns one
// rag.Document per file. Supported formats out of the box:
//   - Plain text (.txt)
//   - Markdown (.md, .markdown), title from YAML front matter or the first heading
//   - PDF (.pdf), text layer only
//
// Use LoaderRegistry to route loading by file extension:
//
//	registry := loader.NewLoaderRegistry()
//	doc, err := registry.Load(ctx, "/policies/leave-2025.pdf", "Leave Policy 2025")
//
// Custom loaders can be registered for any extension:
//
//	registry.Register(".html", myHTMLLoader)
package loader
