package quiz

var defaultBank = MustNewBank([]Section{
	{
		ID:    "background",
		Title: "Your background",
		Questions: []Question{
			{ID: "education", Prompt: "What is your highest completed qualification?", Options: []Option{
				{"school", "High school / matric", 1},
				{"diploma", "Diploma or certificate", 2},
				{"bachelors", "Bachelor's degree", 3},
				{"postgrad", "Honours, master's or higher", 4},
			}},
			{ID: "experience", Prompt: "How many years of work experience do you have?", Options: []Option{
				{"lt2", "Less than 2 years", 1},
				{"2to5", "2 to 5 years", 2},
				{"5to10", "5 to 10 years", 4},
				{"gt10", "More than 10 years", 3},
			}},
			{ID: "role", Prompt: "Which best describes your current role?", Options: []Option{
				{"individual", "Individual contributor", 2},
				{"team_lead", "Team lead or supervisor", 3},
				{"manager", "Manager or head of department", 4},
				{"founder", "Business owner or founder", 4},
				{"between", "Between roles", 1},
			}},
		},
	},
	{
		ID:    "goals",
		Title: "Your goals",
		Questions: []Question{
			{ID: "motivation", Prompt: "What is the main reason you want an MBA?", Options: []Option{
				{"promotion", "Move into senior leadership", 4},
				{"switch", "Change industry or function", 3},
				{"business", "Start or grow my own business", 4},
				{"learning", "Personal development", 2},
			}},
			{ID: "timeline", Prompt: "When would you like to start studying?", Options: []Option{
				{"now", "This intake", 4},
				{"six_months", "Within six months", 3},
				{"year", "Within a year", 2},
				{"unsure", "Not sure yet", 1},
			}},
		},
	},
	{
		ID:    "commitment",
		Title: "Study commitment",
		Questions: []Question{
			{ID: "hours", Prompt: "How many hours a week can you dedicate to study?", Options: []Option{
				{"lt5", "Fewer than 5", 1},
				{"5to10", "5 to 10", 3},
				{"gt10", "More than 10", 4},
			}},
			{ID: "employer", Prompt: "Would your employer support your studies?", Options: []Option{
				{"yes", "Yes, with time or funding", 4},
				{"maybe", "Possibly", 2},
				{"no", "No", 1},
				{"self", "I am self-employed", 3},
			}},
			{ID: "funding", Prompt: "How would you fund the remaining fees after a scholarship?", Options: []Option{
				{"self", "Personal savings", 3},
				{"employer", "Employer sponsorship", 4},
				{"loan", "Study loan", 2},
				{"unsure", "I would need guidance", 1},
			}},
		},
	},
})

// Default returns the production question bank.
func Default() *Bank { return defaultBank }
