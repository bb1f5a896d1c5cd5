package mcpserver

// StudyGuide explains to LLM clients how the learnmate tools fit together.
const StudyGuide = `# learnmate Study Tools

learnmate keeps study material per subject and answers questions from it.

## Typical flow

1. ` + "`list_subjects`" + ` to find the subject id.
2. ` + "`list_resources`" + ` to see which materials exist and their status
   (pending, processed, error). Only processed resources are searchable.
3. ` + "`process_pending`" + ` ingests every pending resource right away instead of
   waiting for the next scheduled sweep.
4. ` + "`search_materials`" + ` returns the chunks closest to a query, each with a
   relevance_score between -1 and 1 (higher is closer).
5. ` + "`suggest_answer`" + ` picks the correct option of a multiple-choice question
   using the subject's material as context.
6. ` + "`practice_exam`" + ` samples stored exam questions into a new practice set.

## Rules

- Subject ids are positive integers.
- ` + "`suggest_answer`" + ` needs the question text and at least one non-empty answer.
- A subject without processed material still gets an answer, based on general
  knowledge only.
`
