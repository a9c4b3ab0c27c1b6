// Package core holds the SCA authorisation domain: the persisted state
// variants and their codec, the state machine, the error taxonomy and the
// Service that coordinates each PSU step. Adapters depend on core; core never
// imports transport or storage packages.
package core
