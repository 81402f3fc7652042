package reporting

import "github.com/otus-sbus/sbus/internal/log"

// Publisher receives the telemetry a Reporter produces. In the real
// cFS bus these become CCSDS packets transmitted back onto the bus
// itself (SB publishing its own telemetry); here the command task
// hands each snapshot to a Publisher instead, which keeps the wire
// encoding out of scope while leaving the seam a future bus-loopback
// publisher could fill.
type Publisher interface {
	PublishHK(HKTelemetry)
	PublishStats(StatsTelemetry)
	PublishOneSub(OneSub)
	PublishAllSubs(AllSubsSegment)
}

// LogPublisher is the default Publisher: it logs every snapshot at
// info/debug level through the bus's own logger.
type LogPublisher struct {
	logger log.Logger
}

// NewLogPublisher creates a LogPublisher backed by logger.
func NewLogPublisher(logger log.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishHK(hk HKTelemetry) {
	p.logger.WithFields(map[string]interface{}{
		"cmd_count":      hk.CommandCount,
		"cmd_err_count":  hk.CommandErrorCount,
		"msg_send_count": hk.MsgSendCount,
		"mem_in_use":     hk.MemInUse,
	}).Debug("HK_TLM")
}

func (p *LogPublisher) PublishStats(s StatsTelemetry) {
	p.logger.WithField("max_pipes_allowed", s.MaxPipesAllowed).Debug("STATS_TLM")
}

func (p *LogPublisher) PublishOneSub(o OneSub) {
	p.logger.WithFields(map[string]interface{}{
		"msgid": o.MsgID,
		"pipe":  o.PipeID,
	}).Info("ONESUB_TLM")
}

func (p *LogPublisher) PublishAllSubs(seg AllSubsSegment) {
	p.logger.WithFields(map[string]interface{}{
		"pkt_segment": seg.PktSegment,
		"entries":     len(seg.Entries),
	}).Info("ALLSUBS_TLM")
}
