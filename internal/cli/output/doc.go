// Package output formats rafterctl results as a table, JSON or YAML.
//
// Commands hand the formatter their decoded result. Values that know how
// to lay themselves out as rows implement Tabler; anything else is printed
// as JSON even in table mode.
package output
