// Package rtde provides the wire-level definitions of the Real-Time Data Exchange (RTDE)
// protocol spoken by Universal Robots controllers on port 30004.
//
// This package offers frame encoding and stream re-assembly, the control payload codecs used
// during negotiation, and the recipe codec that packs and unpacks typed data packages.
// It also provides a connection state manager for validating RTDE session transitions.
//
// Frame layout:
//
//	[uint16 total size, header included][uint8 command][payload]
//
// All integers and floats are big-endian.
//
// Commands:
//   - CmdRequestProtocolVersion ('V'):  protocol version negotiation.
//   - CmdGetURControlVersion ('v'):  controller firmware version query.
//   - CmdTextMessage ('M'):  log message emitted by the controller.
//   - CmdDataPackage ('U'):  telemetry (controller to client) or setpoints (client to controller).
//   - CmdSetupOutputs ('O'), CmdSetupInputs ('I'):  recipe negotiation.
//   - CmdStart ('S'), CmdPause ('P'):  data synchronization control.
//
// Recipes:
// A Recipe is the negotiated ordered list of named and typed fields describing one data package
// layout. Records bound to a recipe are DataRecord values; every write to a record is validated
// against the recipe, and Recipe.Pack refuses records with unset fields.
package rtde
