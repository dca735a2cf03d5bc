package assistant

var oracleReplies = []string{
	"Begin with one breath and one task. Clarity follows the first step, not the plan.",
	"The work you keep avoiding is the work that matters. Walk toward it.",
	"Attention is the currency of your days. Spend it where you mean to.",
	"Finished beats flawless. Ship the rough draft and refine it tomorrow.",
	"Every distraction is a choice you can unmake. Close the tab and return.",
	"Momentum is built in small blocks. Guard the next twenty-five minutes.",
	"The mind settles when the desk is clear. Put away what this hour does not need.",
	"You have started hard things before. Start this one the same way: now.",
}

var quoteReplies = []string{
	"Deep work is a skill. It grows with every hour you protect.",
	"Do one thing at a time, and give it everything.",
	"Busy is not the same as productive. Choose the task that moves the needle.",
	"A quiet mind does its best work. Silence the noise and begin.",
	"What you give your attention to is what you become.",
	"Hard problems yield to long, unbroken stretches of thought.",
	"The shallow work will always be there. The deep work will not wait.",
	DefaultQuote,
}

var chatTopics = []Topic{
	{
		Keywords: []string{"focus", "distract"},
		Reply:    "Try committing to just two minutes on the task. Starting is usually the hardest part, and momentum tends to carry you from there.",
	},
	{
		Keywords: []string{"motivat", "encourage"},
		Reply:    "Every session you finish makes the next one easier. Pick one small goal for your next block and let the streak build itself.",
	},
	{
		Keywords: []string{"deep work", "pomodoro"},
		Reply:    "Deep work is long, uninterrupted effort on something demanding. Pomodoro splits it into 25-minute blocks with short breaks so you can build up to it.",
	},
	{
		Keywords: []string{"break", "rest"},
		Reply:    "Breaks keep you sharp. Stand up, stretch, get some water or a few minutes of fresh air, and stay away from screens until the timer ends.",
	},
	{
		Keywords: []string{"overwhelm", "stress"},
		Reply:    "When everything feels urgent, write it all down and pick only the next action. You do not have to finish today, just move one thing forward.",
	},
}

const chatDefault = "I can help with staying focused, planning sessions, or getting back on track after a distraction. What are you working on right now?"
