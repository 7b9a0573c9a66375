// Package models defines the wire shapes exchanged with the GrabSmart backend.
package models
