// Package incident implements the gRPC transport of the incident store.
//
// The service breathe.incident.v1.IncidentService exchanges
// google.protobuf.Struct and ListValue messages (see internal/pb/v1), so the
// default proto codec carries them without generated code. This package holds
// the service descriptor, the client stub and a server adapting an
// incident.Store.
package incident
