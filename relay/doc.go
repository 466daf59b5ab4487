// Package relay defines the vendor-neutral core of the model relay:
// the message and event types exchanged with vendor dispatchers, the
// dispatcher contract, and the priority registry that selects a
// dispatcher for a given platform/model/modality combination.
//
// This package has ZERO dependencies on other omniroute packages to
// avoid circular imports. All other packages import their shared types
// from here.
package relay
