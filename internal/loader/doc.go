// Package loader loads delimited files into relational tables.
//
// Each mapping becomes a FileSpecification. For a file whose name matches,
// the specification derives an effective date and load type from the name,
// consults the audit table, and either skips the file or streams its rows
// through a DelimitedReader, RowMapper and BatchWriter into the target table.
// The audit write and every insert for a file commit or roll back together.
//
// SQL is written with '?' placeholders against the Store interface; the
// store packages translate it for their driver.
package loader
