package reporting

// EnableSubReporting / DisableSubReporting / SubReportingEnabled gate
// whether a successful Subscribe emits ONESUB_TLM, toggled by
// ENABLE_SUB_REPORTING_CC / DISABLE_SUB_REPORTING_CC.
// The flag lives behind an AtomicBool (Reporter.subReporting) so the
// command task can flip it without taking any bus lock, since it is
// read from whichever application thread calls Subscribe.

func (r *Reporter) EnableSubReporting()  { r.subReporting.Set() }
func (r *Reporter) DisableSubReporting() { r.subReporting.UnSet() }
func (r *Reporter) SubReportingEnabled() bool {
	return r.subReporting.IsSet()
}
