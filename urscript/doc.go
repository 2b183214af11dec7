// Package urscript sends UR script programs to the controller's script port and
// monitors their completion.
//
// The controller never answers on the script port, so completion is inferred from
// telemetry. SendProgram instruments the program with writes to two output boolean
// registers, register 0 when the program starts and register 1 when it reaches its
// end, and a monitor goroutine polls the values the RTDE session ingests into the
// shared robotstate.Store:
//
//	store := robotstate.New()
//	sess, _ := rtdeconn.NewSession(rtdeCfg, store)
//	_ = sess.Open(ctx)
//
//	client, _ := urscript.NewClient(scriptCfg, store)
//	_ = client.SendProgram(ctx, "def move():\n  movej([0, -1.57, 0, -1.57, 0, 0])\nend\n")
//	if err := client.Wait(ctx); err != nil {
//		// safety stop or a program that stopped before its end
//	}
//
// The RTDE output recipe must contain output_bit_registers0_to_31,
// safety_status_bits and robot_status_bits; rtdeconn.DefaultOutputFields does.
package urscript
