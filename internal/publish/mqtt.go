package publish

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/charmbracelet/log"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/nimlog"
)

// MQTTPublisher is spec.md §4.6's MQTT status/command adapter: "each
// field as dt/longmynd/<name>", with derived topics and a command
// subscription. Grounded on the eclipse/paho.mqtt.golang client (named
// in the DOMAIN STACK wiring from the serebryakov7-j1708-stats and
// madpsy-ka9q_ubersdr manifests), using its ClientOptions/on-connect-
// subscribe idiom.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    *config.Configuration
	log    *log.Logger

	Tuner config.TunerID
}

// NewMQTTPublisher connects to broker and subscribes to the command
// topics of spec.md §4.6. cfg is the Configuration singleton command
// handlers mutate; tuner selects the dt/dt2 topic prefix this publisher
// instance owns (one MQTTPublisher per tuner, spec.md §4.6).
func NewMQTTPublisher(broker, clientID string, cfg *config.Configuration, tuner config.TunerID) (*MQTTPublisher, error) {
	p := &MQTTPublisher{cfg: cfg, log: nimlog.For("publish.mqtt"), Tuner: tuner}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(p.onConnect)

	p.client = mqtt.NewClient(opts)
	if tok := p.client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, errcode.Wrap(errcode.BusError, "publish.NewMQTTPublisher", "connect", tok.Error())
	}
	return p, nil
}

// onConnect resubscribes on every (re)connection, matching
// original_source/mymqtt.c's on_connect, which re-subscribes from
// scratch so a dropped-and-resumed session doesn't lose its commands.
func (p *MQTTPublisher) onConnect(c mqtt.Client) {
	for _, topic := range cmdTopics() {
		if tok := c.Subscribe(topic, 1, p.onMessage); tok.Wait() && tok.Error() != nil {
			p.log.Warn("MQTT subscribe failed", "topic", topic, "err", tok.Error())
		}
	}
}

// onMessage implements spec.md §4.6's command handling: sr, frequency,
// polar, swport, tsip, each range-validated before invoking a
// Configuration setter. Bare cmd/longmynd/<name> topics address Tuner1
// (original_source/mymqtt.c's "backward compatibility" rule); the
// cmd/longmynd/tunerN/<name> topics address tuner N explicitly.
func (p *MQTTPublisher) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := string(msg.Payload())

	tuner, name, ok := splitCommandTopic(topic)
	if !ok {
		return
	}
	if err := p.dispatchCommand(tuner, name, payload); err != nil {
		p.log.Warn("MQTT command rejected", "topic", topic, "payload", payload, "err", err)
	}
}

// splitCommandTopic parses "cmd/longmynd/<name>" (implying Tuner1) or
// "cmd/longmynd/tuner{1,2}/<name>".
func splitCommandTopic(topic string) (config.TunerID, string, bool) {
	const prefix = "cmd/longmynd/"
	if !strings.HasPrefix(topic, prefix) {
		return 0, "", false
	}
	rest := topic[len(prefix):]
	switch {
	case strings.HasPrefix(rest, "tuner1/"):
		return config.Tuner1, rest[len("tuner1/"):], true
	case strings.HasPrefix(rest, "tuner2/"):
		return config.Tuner2, rest[len("tuner2/"):], true
	case rest == "":
		return 0, "", false
	default:
		return config.Tuner1, rest, true
	}
}

func (p *MQTTPublisher) dispatchCommand(tuner config.TunerID, name, payload string) error {
	switch name {
	case "sr":
		ksps, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		return p.cfg.SetSymbolRate(tuner, ksps)
	case "frequency":
		khz, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		return p.cfg.SetFrequency(tuner, khz)
	case "polar":
		switch payload {
		case "h":
			p.cfg.SetPolarisation(tuner, config.PolarHorizontal18V)
		case "v":
			p.cfg.SetPolarisation(tuner, config.PolarVertical13V)
		case "n":
			p.cfg.SetPolarisation(tuner, config.PolarOff)
		default:
			return fmt.Errorf("polar must be h, v, or n, got %q", payload)
		}
		return nil
	case "swport":
		swap, err := strconv.ParseBool(payload)
		if err != nil {
			return err
		}
		p.cfg.SetPortSwap(tuner, swap)
		return nil
	case "tsip":
		ip, port, err := splitIPPort(payload)
		if err != nil {
			return err
		}
		p.cfg.SetTsSinkUDP(tuner, ip, port)
		return nil
	default:
		return nil
	}
}

func splitIPPort(s string) (string, int, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("tsip %q must be host:port", s)
	}
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("tsip %q has a non-numeric port", s)
	}
	return s[:idx], port, nil
}

// Publish emits every field to its dt/longmynd/<name> (or dt2/...)
// topic, plus the derived topics spec.md §4.6 names, satisfying
// StatusSinker so publish.Loop can drive an MQTT publisher the same way
// it drives the UDP/FIFO ones. The derived topics (modulation/fec/
// margin_db/stream_type) need the raw modcod/MER/matype1 values Loop's
// already-rendered []Field doesn't carry, so this recovers them from
// the matching wire-coded fields rather than widening StatusSinker.
func (p *MQTTPublisher) Publish(fs []Field) error {
	prefix := topicPrefix(p.Tuner)
	var modcod uint8
	var merTimesTen int32
	var matype1 uint8
	for _, f := range fs {
		p.publishTopic(fmt.Sprintf("%s/longmynd/%s", prefix, f.Name), f.Value)
		switch f.Code {
		case codeModcod:
			if v, err := strconv.Atoi(f.Value); err == nil {
				modcod = uint8(v)
			}
		case codeMER:
			if v, err := strconv.ParseFloat(f.Value, 64); err == nil {
				merTimesTen = int32(v * 10)
			}
		case codeMatype1:
			if v, err := strconv.ParseUint(strings.TrimPrefix(f.Value, "0x"), 16, 8); err == nil {
				matype1 = uint8(v)
			}
		}
	}

	p.publishTopic(fmt.Sprintf("%s/longmynd/modulation", prefix), modulation(modcod))
	p.publishTopic(fmt.Sprintf("%s/longmynd/fec", prefix), fec(modcod))
	p.publishTopic(fmt.Sprintf("%s/longmynd/margin_db", prefix), fmt.Sprintf("%d", marginDB(merTimesTen, modcod)))
	p.publishTopic(fmt.Sprintf("%s/longmynd/stream_type", prefix), matypeStreamType(matype1))
	return nil
}

func (p *MQTTPublisher) publishTopic(topic, payload string) {
	tok := p.client.Publish(topic, 1, false, payload)
	go func() {
		if tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
			p.log.Warn("MQTT publish failed", "topic", topic, "err", tok.Error())
		}
	}()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
