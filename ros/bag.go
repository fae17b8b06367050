// Package ros holds ROS message types for joint trajectories and reads them from rosbags.
package ros

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read ros bag")
	}
	return rb, nil
}

// topicKey is the key gobag files parsed messages under: no leading slash, slashes replaced by
// underscores, lower case.
func topicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// bagMessage is one parsed line: the record time plus the message itself.
type bagMessage[T any] struct {
	Meta Time `json:"meta"`
	Data T    `json:"data"`
}

// MessagesForTopic decodes every message recorded on topic in record order.
func MessagesForTopic[T any](rb *rosbag.RosBag, topic string) ([]T, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[topicKey(topic)]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	var all []T
	for {
		data, err := msgs.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		var message bagMessage[T]
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, errors.Wrapf(err, "decoding message %d on %s", len(all), topic)
		}
		all = append(all, message.Data)
	}
	return all, nil
}

// JointTrajectoriesFromBag reads every JointTrajectory recorded on topic in filename.
func JointTrajectoriesFromBag(filename, topic string) ([]JointTrajectory, error) {
	rb, err := ReadBag(filename)
	if err != nil {
		return nil, err
	}
	return MessagesForTopic[JointTrajectory](rb, topic)
}
