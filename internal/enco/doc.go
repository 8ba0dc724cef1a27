// Package enco loads the monthly ENCO consumer confidence tables and computes
// answer shares per question.
//
// Each month ships three tables keyed by dwelling and household: cs (household
// characteristics), viv (dwelling and interview date) and cb (the questionnaire).
// They are inner-joined on the key columns, stacked across months and summarized
// as the percentage of each answer at national, state and municipal level.
package enco
