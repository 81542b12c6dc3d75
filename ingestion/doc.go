// Package ingestion turns submitted documents into stored, searchable
// passages.
//
// A Pipeline creates each document in PROCESSING state and then, on a
// worker pool, runs extract, normalize, chunk and for every batch embed
// followed by a dual-store write, all in ordinal order. The document ends
// READY when every passage is stored, or ERROR with the failure message.
// A failed document is never resumed; resubmission creates a new one.
//
// A Crawler feeds a pipeline from a site: it discovers URLs, skips those
// already settled in a ledger, and ingests the rest in small paced
// batches, marking each URL settled once it reaches a terminal outcome.
package ingestion
