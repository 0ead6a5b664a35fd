// Package model defines the core domain types shared by the chat server,
// the client and the persistence layer.
package model
