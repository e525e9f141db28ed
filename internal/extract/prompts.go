package extract

const relevanceGatePrompt = `You are a strict classifier. Decide whether the assistant reply below contains specific, named book recommendations that should be shown to the user as book cards. General talk about reading, clarifying questions, or habit discussion does not count.

Answer with exactly YES or NO and nothing else.

Assistant reply:
%s`

const candidatePrompt = `Extract the books recommended in the assistant reply below. Return at most 3 entries. If the user asked for books similar to a title they mentioned, return the similar books, never the mentioned title itself.

Respond with only a JSON array of strings, each string formatted as "Title Author", for example ["Atomic Habits James Clear"]. Return [] if no specific books are recommended.

User message:
%s

Assistant reply:
%s`
