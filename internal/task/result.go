package task

// Record is the terminal outcome of one unit.
type Record struct {
	Name string `json:"name"`

	// Result is set when the unit finished without error
	Result any `json:"result,omitempty"`

	// Exception describes the failure when the unit finished with an error
	Exception string `json:"exception,omitempty"`

	// Unqueryable is set when the unit never went through completion
	// bookkeeping, e.g. it was still running when the run stopped waiting
	Unqueryable bool `json:"unqueryable,omitempty"`
}

// Aggregate builds one record per unit, in the order given. It never fails:
// units without a recorded outcome are marked unqueryable.
func Aggregate(units []*Unit) []Record {
	records := make([]Record, 0, len(units))
	for _, u := range units {
		records = append(records, recordFor(u))
	}
	return records
}

func recordFor(u *Unit) Record {
	rec := Record{Name: u.Name()}

	result, err, ok := u.Outcome()
	switch {
	case !ok:
		rec.Unqueryable = true
	case err != nil:
		rec.Exception = err.Error()
	default:
		rec.Result = result
	}
	return rec
}

// Summarize groups records by task name: results and exceptions keyed by name,
// plus the names of unqueryable units.
func Summarize(records []Record) (map[string][]any, map[string][]string, []string) {
	results := make(map[string][]any)
	exceptions := make(map[string][]string)
	unqueryable := make([]string, 0)

	for _, rec := range records {
		switch {
		case rec.Unqueryable:
			unqueryable = append(unqueryable, rec.Name)
		case rec.Exception != "":
			exceptions[rec.Name] = append(exceptions[rec.Name], rec.Exception)
		default:
			results[rec.Name] = append(results[rec.Name], rec.Result)
		}
	}
	return results, exceptions, unqueryable
}
