// Package projects holds renewable energy projects and their typed update schema.
//
// Updates arriving from clients are decoded into ProjectUpdate, which rejects
// unknown fields and validates enum and numeric ranges before anything is
// written. Reads go to a replica when one is configured.
package projects
