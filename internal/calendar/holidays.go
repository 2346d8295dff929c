package calendar

// holidayTables maps a region code to its public holidays. Fixed-date
// holidays are keyed "MM-DD" and recur every year; moveable feasts are keyed
// "YYYY-MM-DD" and must be extended as years roll over.
var holidayTables = map[string]map[string]struct{}{
	"FR": {
		// Fixed dates.
		"01-01": {}, // Jour de l'an
		"05-01": {}, // Fête du travail
		"05-08": {}, // Victoire 1945
		"07-14": {}, // Fête nationale
		"08-15": {}, // Assomption
		"11-01": {}, // Toussaint
		"11-11": {}, // Armistice 1918
		"12-25": {}, // Noël

		// Easter Monday, Ascension, Whit Monday.
		"2025-04-21": {},
		"2025-05-29": {},
		"2025-06-09": {},
		"2026-04-06": {},
		"2026-05-14": {},
		"2026-05-25": {},
		"2027-03-29": {},
		"2027-05-06": {},
		"2027-05-17": {},
		"2028-04-17": {},
		"2028-05-25": {},
		"2028-06-05": {},
	},
}
