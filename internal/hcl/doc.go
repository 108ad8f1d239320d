// Package hcl provides the HCL implementation of config.Loader. It parses
// profile and manifest files, merges them over the built-in profiles and
// binds scalar-or-list resource values through cty.
package hcl
