// Package pagination retrieves every record of a REST collection using one
// of five conventions: page number, offset/limit, cursor, single call, and
// single call with a nested data key.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig("https://swapi.dev/api/people/"))
//	params := pagination.DefaultParams()
//	params.PerPage = 10
//	params.DataKey = "results"
//	strategy, _ := pagination.New(pagination.KindPaginated, c, params)
//	records, err := strategy.FetchAll(ctx)
//
// Every strategy runs the same loop: fetch a page, append its records,
// then continue or stop. Pages are fetched strictly in order, one at a time.
//
// Stop conditions shared by all strategies:
//   - a request fails after its retries: the records gathered so far are
//     returned together with the error
//   - a page extracts to no records: treated as the end of the data, so a
//     source that returns an empty page mid-sequence ends pagination early
//
// Strategy specific stop conditions are documented on each type.
package pagination
