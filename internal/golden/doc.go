// Package golden loads and writes planner test specifications.
//
// A specification file holds an ordered list of test cases separated by a
// line containing only "====". Each case starts with the SQL statement,
// optionally preceded by "#" comment lines, followed by sections introduced
// by "---- NAME" headers:
//
//	# Grouping on a partition column.
//	select year, count(*) from functional.alltypes group by year
//	---- QUERYOPTIONS
//	mt_dop=2
//	---- DATABASE
//	functional
//	---- PLAN
//	PLAN-ROOT SINK
//	|
//	01:AGGREGATE [FINALIZE]
//	...
//	---- PLAN VERBOSE
//	...
//	====
//
// QUERYOPTIONS and DATABASE are optional per case. Every case needs at least
// one PLAN block. "---- PLAN" is checked at the case's effective explain level;
// "---- PLAN <LEVEL>" pins the level. A block whose expected text is a planner
// error message marks a negative case.
package golden
