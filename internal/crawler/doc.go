// Package crawler implements the resumable breadth-first discovery crawl.
// It visits pages one at a time, persists every fetch immediately, and
// classifies outbound links into PDFs, further pages to visit, and candidate
// program pages.
package crawler
