// Package reembed rebuilds vector index entries for stored passages.
//
// It walks every passage of READY documents, embeds the text again through
// the embedding coordinator and upserts the result into a vector index.
// Use it after switching embedding models or when moving to a new index
// backend.
package reembed
