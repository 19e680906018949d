// Package core provides the business logic for vehicle CSV imports.
//
// This package holds all domain logic independent of any UI, transport or
// database driver. It can be used by web handlers, the CLI, or tests without
// modification.
//
// # Table Registry
//
// Tables are registered at init time using [Register]. Each [TableDefinition]
// carries the static column schema of one export format:
//
//	core.Register(TableDefinition{
//	    Info: TableInfo{Key: "cars", Group: "Dealer", IdentityKeys: []string{"vin", "interne_nummer"}},
//	    FieldSpecs: []FieldSpec{
//	        {Name: "marke", Type: FieldText, Required: true},
//	        {Name: "preis", Type: FieldDecimal},
//	    },
//	})
//
// # Import Pipeline
//
// An [Importer] runs one file as one batch:
//
//  1. The input is decoded to UTF-8 and the delimiter is detected ([NewDecodingReader], [DetectDelimiter])
//  2. The header is checked for required columns ([ValidateHeaders])
//  3. Each row is normalized into a typed [Record] ([Normalizer])
//  4. The record's identity is resolved by VIN, else internal number ([Resolver])
//  5. The record is inserted or merged into the stored row ([Upserter])
//
// All rows share one transaction and each row runs in its own savepoint, so a
// failing row is recorded in [Result] without affecting the others.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB006: Storage errors (duplicates, lengths, connections)
//   - VAL001-VAL004: Validation errors (dates, numbers, missing columns)
//   - FILE001-FILE006: File errors (size, encoding, format)
//   - UPL001-UPL003: Import slot and cancellation errors
package core
