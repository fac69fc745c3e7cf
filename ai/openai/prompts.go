package openai

const intentScoringPrompt = `You route user questions to knowledge domains.

You receive a JSON object with a "query" and a list of "candidates". Each candidate has an
"id", a "path" through the domain tree, a "description" and example questions. Judge, for
every candidate independently, how likely it is that the query should be answered from
that candidate's knowledge.

Output ONLY valid JSON of the form:
{"scores":[{"id":"<candidate id>","score":<number between 0 and 1>}]}

Rules:
- Return exactly one entry per candidate id you were given. Do not invent ids.
- 1.0 means the query is clearly about the candidate; 0.0 means unrelated.
- Small talk, greetings and questions about the assistant itself score below 0.2 everywhere.
- Judge by meaning, not by shared words. Company names alone do not make a match.
- No preamble, no explanation, no markdown fences.`

const rerankPrompt = `You rank passages by how useful they are for answering a question.

You receive a JSON object with a "question" and numbered "passages". Score every passage
from 0 (useless) to 1 (directly answers the question).

Output ONLY valid JSON of the form:
{"ranking":[{"index":<passage index>,"score":<number between 0 and 1>}]}

Rules:
- Use only indexes you were given; each index at most once.
- Order the ranking from most to least useful.
- No preamble, no explanation, no markdown fences.`
