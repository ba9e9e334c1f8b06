// Package catalog defines the record types and store contracts shared by the
// harvesting tiers. Every tier writes through these interfaces; nothing in the
// core deletes rows.
package catalog
