// Package mqtt attaches a remote vehicle fleet over an MQTT broker: each
// remote vehicle appears to the coordinator as a VehicleAgent whose commands
// are published on a per-vehicle topic, while interrupt replies and mutation
// confirmations are subscribed and forwarded back.
package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/fleetsim/core/agent"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/scheduler"
	"github.com/kilianp07/fleetsim/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Bridge connects the coordinator to vehicles reachable over MQTT.
type Bridge struct {
	cli     pahoClient
	cfg     Config
	replies agent.ReplySink
	acks    agent.MutationAcker
	log     logger.Logger
}

// NewBridge connects to the broker and subscribes to the reply and ack
// topics, forwarding them to the given sinks.
func NewBridge(cfg Config, replies agent.ReplySink, acks agent.MutationAcker) (*Bridge, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mqtt bridge: %w", err)
	}
	if replies == nil || acks == nil {
		return nil, fmt.Errorf("mqtt bridge: nil reply or ack sink")
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_bridge")
	b := &Bridge{cfg: cfg, replies: replies, acks: acks, log: log}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(cfg.ReplyTopic, cfg.QoS, b.onReply); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", cfg.ReplyTopic, token.Error())
		}
		if token := c.Subscribe(cfg.AckTopic, cfg.QoS, b.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", cfg.AckTopic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	b.cli = cli
	return b, nil
}

// Agent returns the remote vehicle as a VehicleAgent.
func (b *Bridge) Agent(id model.VehicleID) agent.VehicleAgent {
	return &remoteAgent{bridge: b, id: id}
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.cli != nil {
		b.cli.Disconnect(250)
	}
}

func (b *Bridge) onReply(_ paho.Client, msg paho.Message) {
	var env replyEnvelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		b.log.Errorf("decode reply: %v", err)
		return
	}
	kind, err := decodeReplyKind(env.Kind)
	if err != nil {
		b.log.Errorf("decode reply: %v", err)
		return
	}
	reply := agent.InterruptReply{
		Kind:        kind,
		InterruptID: model.InterruptID(env.InterruptID),
		VehicleID:   model.VehicleID(env.VehicleID),
		Tick:        env.Tick,
	}
	if env.Schedule != nil {
		s, err := decodeSchedule(env.Schedule)
		if err != nil {
			b.log.Errorf("reply from %s: %v", env.VehicleID, err)
			return
		}
		reply.Schedule = &s
	}
	b.replies.OnInterruptReply(reply)
}

func (b *Bridge) onAck(_ paho.Client, msg paho.Message) {
	var env ackEnvelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		b.log.Errorf("decode ack: %v", err)
		return
	}
	triggers := make([]scheduler.Trigger, 0, len(env.Triggers))
	for _, t := range env.Triggers {
		triggers = append(triggers, scheduler.Trigger{AtTick: t.AtTick, Kind: scheduler.WaveKind(t.Kind)})
	}
	b.acks.AcknowledgeMutation(model.VehicleID(env.VehicleID), triggers)
}

func (b *Bridge) publish(id model.VehicleID, env commandEnvelope) {
	env.VehicleID = string(id)
	payload, err := json.Marshal(env)
	if err != nil {
		b.log.Errorf("encode %s command for %s: %v", env.Type, id, err)
		return
	}
	topic := fmt.Sprintf("%s/%s", b.cfg.CommandTopicPrefix, id)
	if token := b.cli.Publish(topic, b.cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		b.log.Errorf("publish %s to %s: %v", env.Type, id, token.Error())
	}
}

// remoteAgent publishes coordinator commands to the vehicle's command topic.
type remoteAgent struct {
	bridge *Bridge
	id     model.VehicleID
}

func (a *remoteAgent) ID() model.VehicleID { return a.id }

// Send implements agent.VehicleAgent. Publishing is fire-and-forget;
// failures are logged, matching the in-process inbox semantics.
func (a *remoteAgent) Send(msg agent.Message) {
	switch m := msg.(type) {
	case agent.Interrupt:
		a.bridge.publish(a.id, commandEnvelope{Type: typeInterrupt, InterruptID: string(m.InterruptID), Tick: m.Tick})
	case agent.StopDriving:
		a.bridge.publish(a.id, commandEnvelope{Type: typeStop, Tick: m.Tick})
	case agent.ModifyPassengerSchedule:
		env := commandEnvelope{Type: typeModify, Tick: m.Tick, Schedule: encodeSchedule(m.Schedule)}
		if m.ReservationID != nil {
			r := string(*m.ReservationID)
			env.ReservationID = &r
		}
		a.bridge.publish(a.id, env)
	case agent.Resume:
		a.bridge.publish(a.id, commandEnvelope{Type: typeResume})
	default:
		a.bridge.log.Errorf("unknown command %T for %s", msg, a.id)
	}
}
