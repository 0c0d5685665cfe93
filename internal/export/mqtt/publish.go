package mqtt

import (
	"context"
	"dronefeed/internal/export"
	"fmt"
)

const (
	navdataTopic = "navdata"
	frameTopic   = "video"
)

func (publisher *Publisher) PublishNavdata(ctx context.Context, message export.NavdataMessage) (err error) {
	err = publisher.publish(navdataTopic, message)
	return
}

func (publisher *Publisher) PublishFrame(ctx context.Context, message export.FrameMessage) (err error) {
	err = publisher.publish(frameTopic, message)
	return
}

func (publisher *Publisher) publish(suffix string, message any) (err error) {
	payload, err := publisher.encoder(message)
	if err != nil {
		err = fmt.Errorf("failed to encode %s message: %w", suffix, err)
		return
	}

	topic := publisher.topic(suffix)
	token := publisher.client.Publish(topic, publisher.config.QoS, publisher.config.Retain, payload)
	if !token.WaitTimeout(publisher.config.PublishTimeout) {
		err = fmt.Errorf("timed out publishing to %s", topic)
		return
	}
	if token.Error() != nil {
		err = fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
		return
	}
	return
}

func (publisher *Publisher) topic(suffix string) string {
	return publisher.config.TopicPrefix + "/" + suffix
}
