package nl2sql

import "fmt"

const AskDatabaseFunctionName = "ask_database"

// AskDatabaseFunction builds the single function offered to the model. The
// schema description is embedded verbatim, so equal inputs give equal JSON.
func AskDatabaseFunction(schemaDescription string) FunctionDefinition {
	return FunctionDefinition{
		Name: AskDatabaseFunctionName,
		Description: "Use this function to answer user questions about the shop database. " +
			"Input should be a fully formed READ_ONLY SQL query. Write SQL parameters in all capitals.",
		Parameters: FunctionParameters{
			Type: "object",
			Properties: map[string]PropertySchema{
				"query": {
					Type: "string",
					Description: fmt.Sprintf("SQL query extracting info to answer the user's question and include relevant columns from the database.\n"+
						"SQL should be written using this database schema:\n%s\n"+
						"The query should be returned in plain text, not in JSON.", schemaDescription),
				},
			},
			Required: []string{"query"},
		},
	}
}
