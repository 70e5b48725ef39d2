// Package core provides the business logic of tabled: user-defined tables,
// validated bulk import, and the inventory engines built on top of them.
//
// The package is independent of any transport. The web handlers and the CLI
// both drive a [Service] created with [NewService] on top of a store.Store.
//
// # Tables and Rows
//
// A table owns an ordered list of typed columns. Row data is a JSON object
// keyed by column name; values are coerced by the column type contracts in
// the coltype package before they are stored. Sale and rent tables carry
// inventory columns (price and qty, or available and used) that cannot be
// removed.
//
// # Import
//
// [Service.Import] validates a whole batch before writing anything:
//
//  1. Headers are mapped to columns, explicitly or by [SuggestMapping]
//  2. Every row is validated strictly and checked for duplicates
//  3. Any problem rejects the batch with a validation error listing them
//  4. Rows are inserted one savepoint each; insert failures are reported
//
// Concurrent imports are bounded by an [ImportLimiter].
//
// # Inventory
//
// [Service.Buy], [Service.Rent] and [Service.Release] check and change an
// item under a per-item lock inside one store transaction, and append an
// entry to the [Ledger]. Ledger writes never fail the operation.
//
// # Error Handling
//
// Operations return *[Error] values whose [Kind] selects the HTTP status.
// [MapError] turns any error into a user-facing message with a support code:
//
//   - VAL001-VAL007: Validation errors (stock, required, duplicates, options)
//   - CONF001-CONF002: Conflicts (column names, active rentals)
//   - AUTH001-AUTH002: Access errors
//   - SYS001-SYS002: Capacity errors (import slots, item locks)
//   - DB001-DB004: Database connectivity
package core
