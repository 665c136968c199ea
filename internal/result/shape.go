package result

// Shape classifies res against a validated mask.
//
// Rules, first match wins:
//  1. more than one row and One set: Multiple
//  2. rows returned, neither One nor Many set: NotEmpty
//  3. rows returned, Many not set: the first row
//  4. rows returned, Many set: all rows
//  5. no rows: with None set, null when One is set, the empty slice when
//     Many is set, null otherwise; without None, NoData
//
// text and params are recorded on errors only.
func Shape(res *Result, mask Mask, text string, params []any) (Outcome, error) {
	out := Outcome{Result: res}
	if res != nil {
		out.Duration = res.Duration
	}

	n := res.Len()
	if n > 0 {
		switch {
		case n > 1 && mask&One != 0:
			return Outcome{}, NewQueryResultError(ErrCodeMultiple, res, text, params)
		case mask&(One|Many) == 0:
			return Outcome{}, NewQueryResultError(ErrCodeNotEmpty, res, text, params)
		case mask&Many == 0:
			out.Kind = KindRow
			out.Row = res.Rows[0]
		default:
			out.Kind = KindRows
			out.Rows = res.Rows
		}
		return out, nil
	}

	if mask&None == 0 {
		return Outcome{}, NewQueryResultError(ErrCodeNoData, res, text, params)
	}
	if mask&One == 0 && mask&Many != 0 {
		out.Kind = KindRows
		out.Rows = []Row{}
		if res != nil && res.Rows != nil {
			out.Rows = res.Rows
		}
	}
	return out, nil
}
