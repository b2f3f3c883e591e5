package provider

import (
	"github.com/clbanning/mxj/v2"
	"github.com/pkg/errors"
)

// The feed is rooted at eventList.output.base_event. mxj decodes repeated
// elements as []interface{} and a lone element as map[string]interface{}, so
// both shapes are normalized here before the mapper sees them.
const baseEventPath = "eventList.output.base_event"

// ParseFeed decodes the raw XML document into the generic node tree and
// returns the base_event nodes in document order. Attribute keys carry the
// mxj default "-" prefix; all scalar values are strings at this stage, type
// coercion belongs to the mapper.
func ParseFeed(raw []byte) ([]interface{}, error) {
	doc, err := mxj.NewMapXml(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse provider feed XML")
	}

	baseEvents, err := doc.ValuesForPath(baseEventPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve base_event nodes")
	}
	if len(baseEvents) == 0 {
		return nil, errors.Errorf("no base_event nodes found at %s", baseEventPath)
	}

	return baseEvents, nil
}
