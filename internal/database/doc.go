// Package database reads the route history list from PostgreSQL.
//
// The database is optional and read-only: the list is loaded once at startup
// and the pool is kept only for health checks. Without a database the relay
// serves the built-in demo list.
package database
