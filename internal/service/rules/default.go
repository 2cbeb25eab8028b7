package rules

// SimulationModeReply answers anything the built-in rules do not recognise.
const SimulationModeReply = "I am running in Simulation Mode (Offline). Please ask about 'Skills', 'Projects', or 'Contact'."

// Default returns the built-in portfolio rules used when no rule file is
// configured.
func Default() *Set {
	return MustNewSet([]Rule{
		{
			Name:     "greeting",
			Pattern:  `hi|hello|hey|greetings`,
			Response: "Hello! Accessing personnel files... How can I assist you?",
		},
		{
			Name:     "creator",
			Pattern:  `who|developer|creator|name|usman`,
			Response: "I was created by Md Usman, a B.Tech 3rd Year AI & Data Science student at MTIET.",
		},
		{
			Name:     "skills",
			Pattern:  `skill|stack|tech|python|react`,
			Response: "Usman is proficient in Python, React.js, Tailwind CSS, Arduino (IoT), and Machine Learning.",
		},
		{
			Name:     "projects",
			Pattern:  `project|work|built|portfolio|gate`,
			Response: "Key Projects: \n1. Smart Railway Gate (Arduino/IoT) \n2. AI-Powered Portfolio (React) \n3. Offline SLM Research.",
		},
		{
			Name:     "contact",
			Pattern:  `contact|email|reach|hire`,
			Response: "You can contact him via the form on this site or check his LinkedIn profile.",
		},
		{
			Name:     "hobbies",
			Pattern:  `hobby|chess|food`,
			Response: "He enjoys playing Chess and exploring new food cultures.",
		},
		{
			Name:     "catch-all",
			Response: SimulationModeReply,
		},
	})
}
