// Package repository bulk-ingests file trees.
//
// IndexDirectory walks a local directory and hands every matching file to
// the document processor with its relative path as the source, so running
// it twice replaces rather than duplicates. IndexGit shallow-clones a
// remote repository into a temporary directory and indexes that, prefixing
// every source with "url@ref:".
//
// Version control, dependency and build output directories are always
// skipped. Include and exclude patterns use doublestar syntax ("**/*.md",
// "docs/**") and are matched against the slash-separated relative path;
// a pattern without a slash also matches the base name.
package repository
