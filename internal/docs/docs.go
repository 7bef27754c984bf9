// Package docs builds the integration guide shown on the console docs page.
package docs

import (
	"fmt"
	"strings"
)

// DefaultBaseURL is the public API base used in snippets when none is configured.
const DefaultBaseURL = "https://api.example.com/v1"

// PlaceholderKey stands in for the secret when the caller has not picked a key.
const PlaceholderKey = "YOUR_API_KEY"

// Config is the API location the snippets target.
type Config struct {
	BaseURL     string `json:"baseUrl"`
	APIEndpoint string `json:"apiEndpoint"`
}

// DefaultConfig derives the endpoint from baseURL, falling back to
// DefaultBaseURL when it is empty.
func DefaultConfig(baseURL string) Config {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Config{BaseURL: baseURL, APIEndpoint: baseURL + "/api-keys"}
}

// CodeExample is one titled snippet.
type CodeExample struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// CodeExamples returns the cURL, Node.js and Python snippets that create a key
// at endpoint authenticated with apiKey.
func CodeExamples(apiKey, endpoint string) []CodeExample {
	if apiKey == "" {
		apiKey = PlaceholderKey
	}
	return []CodeExample{
		{Title: "cURL", Code: fmt.Sprintf(curlTemplate, endpoint, apiKey)},
		{Title: "Node.js", Code: fmt.Sprintf(nodeTemplate, endpoint, apiKey)},
		{Title: "Python", Code: fmt.Sprintf(pythonTemplate, endpoint, apiKey)},
	}
}

const curlTemplate = `curl -X POST %s \
  -H "Content-Type: application/json" \
  -H "x-api-key: %s" \
  -d '{
    "name": "My API Key"
  }'`

const nodeTemplate = `const axios = require('axios');

const response = await axios.post(
  '%s',
  {
    name: 'My API Key'
  },
  {
    headers: {
      'Content-Type': 'application/json',
      'x-api-key': '%s'
    }
  }
);

console.log(response.data);`

const pythonTemplate = `import requests

url = "%s"
headers = {
    "Content-Type": "application/json",
    "x-api-key": "%s"
}
data = {
    "name": "My API Key"
}

response = requests.post(url, json=data, headers=headers)
print(response.json())`
