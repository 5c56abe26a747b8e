package prompts

// Stage and manager names
const (
	ManagerAgentName   = "Manager_Agent"
	ReviewerAgentName  = "Code_Reviewer_Agent"
	ExploiterAgentName = "Vulnerability_Exploiter_Agent"
	MitigatorAgentName = "Mitigation_Expert_Agent"
)

// Role descriptions
const (
	ManagerDescription = "Coordinates the security review of a change set and keeps each expert focused on the code under review."

	ReviewerDescription = "Assigned with the task of reviewing code and pinpointing all critical vulnerabilities."

	ExploiterDescription = "Assigned with the task of exploiting vulnerability findings from the code review process."

	MitigatorDescription = `You are assigned with the task of mitigating the findings from the discovered vulnerabilities and exploits,
suggesting fixes and the best tools for the job, including native libraries and code changes where relevant.
Provide security improvement suggestions for specific lines of code that should be improved.
When suggesting changes for one file, you should not suggest the addition or moving of code to another file.`
)

// TerminateMarker ends a stage early when it appears in a reply.
const TerminateMarker = "TERMINATE"

// Behavior instructions
const (
	ManagerInstructions = `You manage a security review of a pull request.
Open the discussion with the code changes, then challenge the expert's answers:
ask for missing evidence, point at code the expert skipped, and make sure every claim refers to a file and line from the changes.
When the expert's analysis is complete and needs no further work, reply with ` + TerminateMarker + ` only.`

	ReviewerInstructions = `Review the code changes for security vulnerabilities.
For every finding give the file, the line numbers from a '__new_code__' section, the vulnerability class, and a severity of low, medium, high or critical.
Ignore style, naming and formatting issues.
Finish your answer with a JSON block following this structure:
` + ReviewsSchema

	ExploiterInstructions = `Take the vulnerabilities present in the code changes and describe how an attacker would exploit each one.
For every exploit give the entry point, the payload or sequence of requests, and the impact.
Say so plainly when a suspected vulnerability cannot be exploited.`

	MitigatorInstructions = `Propose concrete fixes for the vulnerabilities present in the code changes.
Only suggest changes for lines in '__new_code__' sections, and use the line numbers printed there.
Finish your answer with a JSON block following this structure:
` + SuggestionsSchema
)

// Output schemas
const (
	SuggestionsSchema = "```json" + `
{
  "suggestions": [
    {
      "filename": "Complete path of the file, verbatim from <file_name></file_name>, without the tags",
      "language": "Language of the code change",
      "line_number_start": 12,
      "line_number_end": 14,
      "previous_code": "The snippet being replaced, verbatim from the patch",
      "suggested_code": "The snippet that replaces previous_code, only the lines that change",
      "summary": "Succinct explanation of the change, code and file names wrapped in backticks"
    }
  ]
}
` + "```" + `
line_number_start and line_number_end are line numbers from one '__new_code__' section; line_number_end is greater than or equal to line_number_start.
Never suggest changes for '__old_code__' sections, they are for reference only.`

	ReviewsSchema = "```json" + `
{
  "reviews": [
    {
      "filename": "Complete path of the file",
      "severity": "low|medium|high|critical",
      "severity_failure": true,
      "reason": "Why the finding blocks the change"
    }
  ]
}
` + "```" + `
Set severity_failure to true only for findings that must block the change.`
)

// Recovery and summary templates
const (
	ReformatInstructions = `Your previous response did not match the required structure. The error was: %s

Please fix it and respond with ONLY valid JSON matching this structure:
%s

Your previous response was:
%s`

	ReflectionInstructions = `Summarize the discussion above for the next reviewer.
Keep every finding with its file, line numbers, severity and proposed fix, and drop the back-and-forth.
Keep any JSON block verbatim.`
)

// Section markers
const (
	FileNameOpen  = "<file_name>"
	FileNameClose = "</file_name>"
	FileClose     = "</file>"
	OldCodeMarker = "__old_code__"
	NewCodeMarker = "__new_code__"
)
