// Package options models planner query options as a closed, value-typed
// record.
//
// Every recognised option is a field of QueryOptions holding an Optional
// value. An unset field takes the documented default (see Defaults) except
// mt_dop, whose "unset" state is itself meaningful to the parallelism policy
// and therefore has no default.
//
// QueryOptions values are plain structs with no pointers or maps inside, so
// copying one copies all of it. Overlays never mutate their inputs:
//
//	base := options.Defaults()
//	suite := options.QueryOptions{MtDop: options.Some[int32](3)}
//	effective := options.Resolve(base, &suite)
//
// Option names coming from golden files or the suite manifest are validated
// once by Parse; unknown names are rejected there and never reach Resolve.
package options
