// Package core provides the business logic for lead intake.
//
// This package holds all domain logic independent of any transport. The
// HTTP server and the leadctl CLI both drive it through [Service].
//
// # Ingest Flow
//
// A lead file (csv, xlsx or json) goes through [Pipeline.Ingest]:
//
//  1. The extension is checked with [ParseExt] before any content is read.
//  2. [OpenTable] yields flat rows keyed by column name.
//  3. [NormalizeRow] turns dotted column names into a nested record and
//     decodes the sales cell from JSON text.
//  4. [RecordValidator] coerces every field to its schema type, fills in
//     defaults and collects every violation.
//  5. If no row failed, all leads are written in one [store.Store.CreateMany]
//     transaction. Otherwise nothing is written and the caller receives a
//     [BatchValidationError] listing each failing row.
//
// Phase transitions (parsing, normalizing, validating, committing, done or
// rejected) are logged and can be observed with [WithPhaseFunc].
//
// # Export
//
// [Pipeline.Export] and [Pipeline.Template] write the inverse of the ingest
// shape, so an exported file can be uploaded again unchanged.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB000-DB008: Storage errors (duplicates, connections, not found)
//   - VAL001-VAL008: Validation errors (formats, enums, filters, batches)
//   - FILE001-FILE006: File errors (size, encoding, format)
//   - PATH001: Column paths that collide when nested
//   - UPL002-UPL006: Ingest slot errors (busy, canceled, shutting down)
//   - UPS001-UPS002: Partner API errors
package core
