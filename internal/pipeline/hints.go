package pipeline

// HintKey is the reserved record key for internal hint metadata: values
// attached solely to guide a downstream generation step. Hints are
// stripped from every record before it is persisted or returned.
const HintKey = "$hint"

// WithHint returns a copy of rec carrying the given hint.
func WithHint(rec Record, hint any) Record {
	cp := make(Record, len(rec)+1)
	for k, v := range rec {
		cp[k] = v
	}
	cp[HintKey] = hint
	return cp
}

// Hint returns the record's hint, if any.
func Hint(rec Record) (any, bool) {
	v, ok := rec[HintKey]
	return v, ok
}

// StripHints returns a copy of the batch with hint metadata removed
// from every record. The input batch is left untouched.
func StripHints(batch Batch) Batch {
	out := make(Batch, len(batch))
	for i, rec := range batch {
		cp := make(Record, len(rec))
		for k, v := range rec {
			if k == HintKey {
				continue
			}
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
