package extract

// wellKnownTitles maps lowercase keywords that keep showing up in
// recommendation replies to canonical catalog search strings. The scan is a
// deterministic safety net for replies the pattern layers miss.
var wellKnownTitles = []struct {
	keyword string
	search  string
}{
	{"atomic habits", "Atomic Habits James Clear"},
	{"deep work", "Deep Work Cal Newport"},
	{"the power of habit", "The Power of Habit Charles Duhigg"},
	{"thinking, fast and slow", "Thinking Fast and Slow Daniel Kahneman"},
	{"sapiens", "Sapiens Yuval Noah Harari"},
	{"the 7 habits", "The 7 Habits of Highly Effective People Stephen Covey"},
	{"how to win friends", "How to Win Friends and Influence People Dale Carnegie"},
	{"the subtle art of not giving", "The Subtle Art of Not Giving a F*ck Mark Manson"},
}
