package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/websearch"
)

const answerFromSnippetsPrompt = `You are a legal assistant. Using only the web search results below, answer the user's question about Indian law. Cite which result each claim comes from by its number. If the results do not answer the question, say so.

SEARCH RESULTS:
%s

QUESTION:
%s`

// handleGoogleSearch returns raw web search results.
func handleGoogleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, num, err := parseSearchInput(r)
		if err != nil {
			httpError(w, err)
			return
		}

		results, err := deps.Search.Search(r.Context(), query, num)
		if err != nil {
			httpError(w, err)
			return
		}
		if results == nil {
			results = []websearch.Result{}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   query,
			"results": results,
		})
	}
}

// handleKavvySearch searches the web and asks the model to answer from the
// snippets.
func handleKavvySearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, num, err := parseSearchInput(r)
		if err != nil {
			httpError(w, err)
			return
		}

		results, err := deps.Search.Search(r.Context(), query, num)
		if err != nil {
			httpError(w, err)
			return
		}

		var b strings.Builder
		for i, res := range results {
			fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", i+1, res.Title, res.Link, res.Snippet)
		}
		snippets := b.String()
		if snippets == "" {
			snippets = "(no results)"
		}

		answer, err := deps.Engine.Chat(r.Context(), []engine.Message{
			{Role: "user", Content: fmt.Sprintf(answerFromSnippetsPrompt, snippets, query)},
		})
		if err != nil {
			httpError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   query,
			"answer":  answer,
			"results": results,
		})
	}
}

// parseSearchInput reads the query from form fields or the q/query URL
// parameters so both GET and POST callers work.
func parseSearchInput(r *http.Request) (string, int, error) {
	if err := r.ParseForm(); err != nil {
		return "", 0, invalidInputf("parsing form: %v", err)
	}
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		query = strings.TrimSpace(r.FormValue("q"))
	}
	if query == "" {
		return "", 0, invalidInputf("query is required")
	}
	num := parseIntParam(r, "num", 5, 10)
	return query, num, nil
}
