package s3util

import "net/url"

// Project is the cost-allocation tag value applied to every uploaded object.
const Project = "genai-kitchen"

// ProjectTagging returns the URL-encoded tagging string for PutObjectInput.Tagging.
func ProjectTagging() *string {
	t := url.Values{"Project": {Project}}.Encode()
	return &t
}
