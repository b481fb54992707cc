package catalog

// Default returns the built-in stream catalog and aptitude quiz.
// It panics if the built-in data is malformed, which is a programming error.
func Default() *Catalog {
	c, err := New(defaultCategories(), defaultQuestions())
	if err != nil {
		panic("catalog: invalid built-in data: " + err.Error())
	}
	return c
}

func defaultCategories() []Category {
	return []Category{
		{
			ID:          "ba",
			Title:       "B.A. (Bachelor of Arts)",
			Icon:        "🎨",
			Description: "Focuses on humanities, social sciences, and liberal arts. Ideal for those interested in writing, history, and communication.",
			Keywords:    []string{"writing", "history", "languages", "social sciences"},
			Outcomes:    []string{"Teaching", "Civil Services (IAS/PCS)", "Journalism & Media", "Content Creation", "Social Work", "Law (after LLB)"},
		},
		{
			ID:          "bsc",
			Title:       "B.Sc. (Bachelor of Science)",
			Icon:        "🔬",
			Description: "Centered on scientific principles and research. Perfect for analytical minds who enjoy labs and problem-solving.",
			Keywords:    []string{"math", "physics", "chemistry", "biology", "research"},
			Outcomes:    []string{"Scientific Research (ISRO/DRDO)", "IT & Data Analytics", "Higher Education (M.Sc./Ph.D.)", "Biotechnology", "Environmental Science"},
		},
		{
			ID:          "bcom",
			Title:       "B.Com. (Bachelor of Commerce)",
			Icon:        "💼",
			Description: "The foundation of business and finance. Suited for students good with numbers and interested in economics.",
			Keywords:    []string{"accounting", "business", "finance", "economics"},
			Outcomes:    []string{"Chartered Accountant (CA)", "Banking & Finance", "Company Secretary (CS)", "Investment Banking", "MBA Entrance"},
		},
		{
			ID:          "bba",
			Title:       "BBA (Bachelor of Business Administration)",
			Icon:        "📈",
			Description: "A management-focused degree that prepares students for leadership roles and entrepreneurial ventures.",
			Keywords:    []string{"management", "leadership", "marketing", "entrepreneurship"},
			Outcomes:    []string{"Management Trainee", "Human Resources", "Startup Founder", "Sales & Marketing", "Business Development"},
		},
		{
			ID:          "btech",
			Title:       "B.Tech (Bachelor of Technology)",
			Icon:        "💻",
			Description: "An engineering degree focused on practical application of technology. Requires strong math and science skills.",
			Keywords:    []string{"engineering", "technology", "coding", "machines"},
			Outcomes:    []string{"Software Engineer", "Core Engineering (Civil/Mech)", "Product Management", "Data Science", "PSU Jobs"},
		},
		{
			ID:          "voc",
			Title:       "Vocational / Skill Courses",
			Icon:        "🛠️",
			Description: "Short-term, hands-on courses designed to provide specific job skills for immediate employment.",
			Keywords:    []string{"skill", "practical", "hands-on", "short-term"},
			Outcomes:    []string{"Electrician/Technician", "Plumbing", "Computer Operator", "Skilled Trades", "Self-employment"},
		},
	}
}

func defaultQuestions() []Question {
	return []Question{
		{
			ID:   "q1",
			Text: "Which activity do you enjoy the most in your free time?",
			Options: []Option{
				{ID: "o1", Label: "Reading books, writing stories, or debating ideas.", Categories: []string{"ba"}},
				{ID: "o2", Label: "Solving puzzles, building models, or watching science documentaries.", Categories: []string{"bsc", "btech"}},
				{ID: "o3", Label: "Following business news, managing a budget, or organizing events.", Categories: []string{"bcom", "bba"}},
				{ID: "o4", Label: "Fixing gadgets, gardening, or doing craftwork.", Categories: []string{"voc"}},
			},
		},
		{
			ID:   "q2",
			Text: "Which subject combination sounds most interesting to you?",
			Options: []Option{
				{ID: "o1", Label: "History, Political Science, and Literature.", Categories: []string{"ba"}},
				{ID: "o2", Label: "Physics, Chemistry, and Mathematics.", Categories: []string{"bsc", "btech"}},
				{ID: "o3", Label: "Accountancy, Business Studies, and Economics.", Categories: []string{"bcom", "bba"}},
				{ID: "o4", Label: "Computer Applications and practical workshop classes.", Categories: []string{"voc", "bsc"}},
			},
		},
		{
			ID:   "q3",
			Text: "What kind of work environment excites you the most?",
			Options: []Option{
				{ID: "o1", Label: "A library, a classroom, or a newsroom.", Categories: []string{"ba"}},
				{ID: "o2", Label: "A research lab, a tech company, or an engineering site.", Categories: []string{"bsc", "btech"}},
				{ID: "o3", Label: "A corporate office, a bank, or your own startup.", Categories: []string{"bcom", "bba"}},
				{ID: "o4", Label: "A workshop, a studio, or working outdoors.", Categories: []string{"voc"}},
			},
		},
	}
}
