// Package cluster holds the repmgrd domain model: node records as stored
// in the nodes table, the local node's live state, and the Node Directory
// that reads peer records from the database.
package cluster
