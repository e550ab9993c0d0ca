// yomictl sends control operations to a running yomid over the bus.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/yomilabs/yomi-core/internal/protocol"
)

var version = "0.1.0-dev"

const usageText = `usage: yomictl [flags] <command> [args]

commands:
  join <target> [channel]      connect the tenant to a voice target
  leave                        disconnect and drop the queue
  mute | unmute                gate or restore chat readout
  pause | resume               pause or resume the current stream
  skip                         drop the queue and stop the current stream
  volume <percent>             set tenant volume (0-200)
  channel <channel-id>         rebind the source text channel
  queue                        show pending items
  dict add <word> <reading>    register a reading
  dict remove <word>           delete a reading
  dict list                    show the tenant dictionary
  setting model <uuid>         set the speaker's voice model (needs -speaker)
  setting speed <rate>         set the speaker's rate, 0.5-2.0 (needs -speaker)
  setting volume <percent>     set the speaker's volume, 0-200 (needs -speaker)
  setting view                 show the speaker's settings (needs -speaker)
  setting reset                reset the speaker to defaults (needs -speaker)
  version                      print version
`

func main() {
	var (
		server  string
		tenant  string
		speaker string
		timeout time.Duration
	)
	flag.StringVar(&server, "server", nats.DefaultURL, "Bus server URL")
	flag.StringVar(&tenant, "tenant", "", "Tenant (community) identifier")
	flag.StringVar(&speaker, "speaker", "", "Speaker identifier for setting commands")
	flag.DurationVar(&timeout, "timeout", 2*time.Second, "Request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if args[0] == "version" {
		fmt.Println(version)
		return
	}

	req, err := buildRequest(args, tenant, speaker)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	reply, err := send(server, timeout, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printReply(reply)
	if !reply.OK {
		os.Exit(1)
	}
}

func buildRequest(args []string, tenant, speaker string) (protocol.ControlRequest, error) {
	req := protocol.ControlRequest{TenantID: tenant, SpeakerID: speaker}
	if tenant == "" {
		return req, fmt.Errorf("-tenant is required")
	}

	switch args[0] {
	case "join":
		if len(args) < 2 {
			return req, fmt.Errorf("join needs a voice target")
		}
		req.Op = protocol.OpJoin
		req.Target = args[1]
		if len(args) > 2 {
			req.ChannelID = args[2]
		}
	case "leave":
		req.Op = protocol.OpLeave
	case "mute":
		req.Op = protocol.OpMute
	case "unmute":
		req.Op = protocol.OpUnmute
	case "pause":
		req.Op = protocol.OpPause
	case "resume":
		req.Op = protocol.OpResume
	case "skip":
		req.Op = protocol.OpSkip
	case "volume":
		if len(args) < 2 {
			return req, fmt.Errorf("volume needs a percent value")
		}
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return req, fmt.Errorf("invalid percent %q", args[1])
		}
		req.Op = protocol.OpVolume
		req.Level = level
	case "channel":
		if len(args) < 2 {
			return req, fmt.Errorf("channel needs a channel id")
		}
		req.Op = protocol.OpChannel
		req.ChannelID = args[1]
	case "queue":
		req.Op = protocol.OpQueue
	case "dict":
		return buildDictRequest(req, args[1:])
	case "setting":
		return buildSettingRequest(req, args[1:], speaker)
	default:
		return req, fmt.Errorf("unknown command %q", args[0])
	}
	return req, nil
}

func buildDictRequest(req protocol.ControlRequest, args []string) (protocol.ControlRequest, error) {
	if len(args) == 0 {
		return req, fmt.Errorf("dict needs add, remove, or list")
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return req, fmt.Errorf("dict add needs a word and a reading")
		}
		req.Op = protocol.OpDictAdd
		req.Word = args[1]
		req.Reading = args[2]
	case "remove":
		if len(args) < 2 {
			return req, fmt.Errorf("dict remove needs a word")
		}
		req.Op = protocol.OpDictRemove
		req.Word = args[1]
	case "list":
		req.Op = protocol.OpDictList
	default:
		return req, fmt.Errorf("unknown dict command %q", args[0])
	}
	return req, nil
}

func buildSettingRequest(req protocol.ControlRequest, args []string, speaker string) (protocol.ControlRequest, error) {
	if len(args) == 0 {
		return req, fmt.Errorf("setting needs model, speed, volume, view, or reset")
	}
	if speaker == "" {
		return req, fmt.Errorf("-speaker is required for setting commands")
	}
	switch args[0] {
	case "model":
		if len(args) < 2 {
			return req, fmt.Errorf("setting model needs a model uuid")
		}
		req.Op = protocol.OpSetModel
		req.ModelUUID = args[1]
	case "speed":
		if len(args) < 2 {
			return req, fmt.Errorf("setting speed needs a rate")
		}
		rate, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return req, fmt.Errorf("invalid rate %q", args[1])
		}
		req.Op = protocol.OpSetSpeed
		req.Rate = rate
	case "volume":
		if len(args) < 2 {
			return req, fmt.Errorf("setting volume needs a percent value")
		}
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return req, fmt.Errorf("invalid percent %q", args[1])
		}
		req.Op = protocol.OpSetVolume
		req.Level = level
	case "view":
		req.Op = protocol.OpSetView
	case "reset":
		req.Op = protocol.OpSetReset
	default:
		return req, fmt.Errorf("unknown setting command %q", args[0])
	}
	return req, nil
}

func send(server string, timeout time.Duration, req protocol.ControlRequest) (protocol.ControlReply, error) {
	var reply protocol.ControlReply

	conn, err := nats.Connect(server, nats.Name("yomictl"), nats.Timeout(timeout))
	if err != nil {
		return reply, fmt.Errorf("connect to bus: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return reply, err
	}
	msg, err := conn.Request(protocol.SubjectControlPrefix+"."+req.TenantID, data, timeout)
	if err != nil {
		return reply, fmt.Errorf("control request failed: %w", err)
	}
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return reply, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

func printReply(reply protocol.ControlReply) {
	if !reply.OK {
		fmt.Printf("error: %s\n", reply.Error)
		return
	}
	switch {
	case reply.Queue != nil || reply.Pending > 0:
		fmt.Printf("pending: %d\n", reply.Pending)
		for i, entry := range reply.Queue {
			if entry.Speaker != "" {
				fmt.Printf("%2d. [%s] %s\n", i+1, entry.Speaker, entry.Text)
			} else {
				fmt.Printf("%2d. %s\n", i+1, entry.Text)
			}
		}
	case reply.Words != nil:
		for word, reading := range reply.Words {
			fmt.Printf("%s -> %s\n", word, reading)
		}
	case reply.Settings != nil:
		fmt.Printf("model: %s\nrate: %.2f\nvolume: %d%%\n",
			reply.Settings.ModelUUID, reply.Settings.SpeakingRate, reply.Settings.VolumePercent)
	default:
		fmt.Println("ok")
	}
}
