package rtdeconn

import "sync/atomic"

// SessionMetrics contains atomic metrics for an RTDE session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// DataRecvCount indicates the number of data packages ingested.
	DataRecvCount atomic.Uint64
	// DataDropCount indicates the number of data packages dropped for lack of an output recipe.
	DataDropCount atomic.Uint64
	// DataErrCount indicates the number of data packages that failed to decode.
	DataErrCount atomic.Uint64
	// DataSendCount indicates the number of input packages sent.
	DataSendCount atomic.Uint64

	// TextMessageCount indicates the number of controller text messages received.
	TextMessageCount atomic.Uint64
	// UnexpectedReplyCount indicates the number of replies nobody waited for.
	UnexpectedReplyCount atomic.Uint64

	// RecoveryCount indicates the number of recoveries from a lost connection.
	RecoveryCount atomic.Uint64
	// ConnRetryGauge indicates the number of failed connection attempts since the last success.
	ConnRetryGauge atomic.Uint32
}

func (m *SessionMetrics) incDataRecvCount()        { m.DataRecvCount.Add(1) }
func (m *SessionMetrics) incDataDropCount()        { m.DataDropCount.Add(1) }
func (m *SessionMetrics) incDataErrCount()         { m.DataErrCount.Add(1) }
func (m *SessionMetrics) incDataSendCount()        { m.DataSendCount.Add(1) }
func (m *SessionMetrics) incTextMessageCount()     { m.TextMessageCount.Add(1) }
func (m *SessionMetrics) incUnexpectedReplyCount() { m.UnexpectedReplyCount.Add(1) }
func (m *SessionMetrics) incRecoveryCount()        { m.RecoveryCount.Add(1) }
func (m *SessionMetrics) incConnRetryGauge()       { m.ConnRetryGauge.Add(1) }
func (m *SessionMetrics) resetConnRetryGauge()     { m.ConnRetryGauge.Store(0) }
